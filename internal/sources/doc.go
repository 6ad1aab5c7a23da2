// Package sources provides the snapshot sources a reconciliation channel pulls from.
//
// A Source lists the instances currently known to a legacy registry in
// source-native form. Each entry is a Descriptor that the channel maps into a
// registry.InstanceRecord; a descriptor that cannot be mapped fails with an
// error wrapping ErrMalformedDescriptor and is skipped for that pass only.
// A Source never returns a partial list: any transport or decoding failure
// of the listing as a whole is returned as an error.
//
// Current implementations:
//   - EurekaSource: reads the Eureka v1 REST API (GET {endpoint}/apps, JSON)
//   - FileSource: reads a JSON or YAML document listing instances, mostly
//     useful for development and for replaying captured snapshots
//
// NewSourceFactory builds the appropriate source from a channel configuration.
package sources
