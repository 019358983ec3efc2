// Package mirror serves a release directory over HTTP and reports its
// readiness through the standard gRPC health service.
//
// The overall health status is SERVING once the release manifest exists;
// every published file is also registered as a service named after the file.
// Download counters are exposed on /metrics.
package mirror
