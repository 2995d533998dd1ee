// Package grpc provides the gRPC server. It exposes the standard gRPC
// health service, driven by the worker pool health monitor.
package grpc
