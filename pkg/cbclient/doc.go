// Package cbclient provides the primary entry point for constructing an
// NGSIv2 Context Broker client that implements the ngsi.Client interface.
//
// It layers configuration, HTTP transport, and authentication on top of the
// resource interfaces and types defined in the ngsi package. Most
// applications should import cbclient to build a client, then use the
// returned ngsi.Client to access resource-specific clients, for example
// Entities(), Subscriptions(), Types(), etc.
//
// Quick start
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
//
//	  // Minimal: just a broker URL (no auth).
//	  cli, err := cbclient.New(&ngsi.Config{BrokerURL: "http://localhost:1026"})
//	  if err != nil { log.Fatal(err) }
//
//	  // Or with an access token you already have:
//	  cli, err = cbclient.New(&ngsi.Config{
//	    BrokerURL:   "http://localhost:1026",
//	    AccessToken: "eyJhbGciOi...", // bearer token
//	  })
//
//	  // Or with username/password or client credentials. The broker has no
//	  // discovery document for its identity manager, so credentials always
//	  // come with the Keyrock token endpoint:
//	  cli, err = cbclient.New(&ngsi.Config{
//	    BrokerURL: "https://broker.example.com",
//	    TokenURL:  "https://idm.example.com/oauth2/token",
//	    Username:  "user",
//	    Password:  "pass",
//	    // alternatively:
//	    // ClientID:     "client-id",
//	    // ClientSecret: "client-secret",
//	  })
//	  if err != nil { log.Fatal(err) }
//
//	  // Use resource clients via the ngsi.Client interface
//	  room, err := cli.Entities().Get(ctx, "Room1", nil)
//	  if err != nil { log.Fatal(err) }
//	  _ = room
//	}
//
// # Multi-tenancy
//
// Config.Service and Config.ServicePath scope every request to a tenant via
// the Fiware-Service and Fiware-ServicePath headers.
//
// # TLS and development mode
//
// For local development, you can set Config.SkipTLSVerify=true. This is gated
// by the environment variable FILIP_DEV_MODE to avoid accidental insecure
// usage in production environments.
//
// # Helpers
//
// The package also provides convenience constructors NewWithEndpoint,
// NewWithToken, NewWithClientCredentials, and NewWithPassword that wrap New
// with the appropriate configuration.
package cbclient
