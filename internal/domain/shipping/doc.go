// Package shipping contains the Shipping bounded context.
// It maps ERP delivery records onto parcel carrier requests and maps carrier
// responses back onto the ERP's shipment and tracking fields.
//
// Key concepts:
//   - Parcel: one physical package, possibly multiplied by a count
//   - ShippingOffer: a carrier and service pair with a computed total price
//   - ShipmentResult: carrier identifiers joined into ERP field strings
//   - ShipmentRecord: the persisted write-back of one ERP shipment
//   - CarrierGateway: port implemented by carrier adapters
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package shipping
