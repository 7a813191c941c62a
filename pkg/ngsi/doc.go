// Package ngsi provides types, interfaces, and helpers for working with
// the FIWARE NGSIv2 context management protocol.
//
// # Overview
//
// The ngsi package defines the domain types (Entity, Attribute,
// AttributeValue, Subscription, Registration) and the interfaces for the
// resource-oriented clients (EntitiesClient, SubscriptionsClient, and
// so on). A concrete implementation of these clients is provided by the
// cbclient package, which wires configuration, transport, and
// authentication. Most consumers should import cbclient to construct a
// client and then interact with the resource client interfaces exposed
// here.
//
// Getting a client
//
//	import (
//	  "context"
//	  "log"
//
//	  "github.com/SystemsPurge/FiLiP/pkg/cbclient"
//	  "github.com/SystemsPurge/FiLiP/pkg/ngsi"
//	)
//
//	func example() {
//	  ctx := context.Background()
//	  cli, err := cbclient.New(&ngsi.Config{BrokerURL: "http://localhost:1026"})
//	  if err != nil { log.Fatal(err) }
//
//	  // Fetch one entity
//	  room, err := cli.Entities().Get(ctx, "Room1", nil)
//	  if err != nil { log.Fatal(err) }
//	  _ = room
//	}
//
// # Attribute values
//
// NGSIv2 attribute values are loosely typed on the wire. AttributeValue
// models them as a closed union with one constructor per variant:
//
//	temp := ngsi.NewAttribute(ngsi.Number(21.5))
//	pos, err := ngsi.GeoPoint(41.3763726, 2.186447514)
//
// Values built through the constructors always serialize; broker
// payloads that contradict their declared type surface a DecodeError
// rather than being silently coerced.
//
// # Queries and pagination
//
// Use QueryFilter to express entity selection, projection, and paging,
// and the iterator returned by EntitiesClient.Query to walk the result:
//
//	it := cli.Entities().Query(ctx, ngsi.NewQueryFilter().WithType("Room"))
//	for it.HasNext() {
//	  room, err := it.Next()
//	  if err != nil { break }
//	  _ = room
//	}
//
// Every call to Query starts again from offset zero; iterators never
// resume a previous cursor implicitly.
//
// # Errors
//
// Broker error envelopes decode into BrokerError; locally rejected
// input yields ValidationError, transport failures TransportError, and
// partial batch rejections BatchError. Helpers such as IsNotFound and
// IsConflict make it easy to branch on common broker cases.
package ngsi
