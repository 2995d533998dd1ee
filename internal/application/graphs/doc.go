// Package graphs holds the catalog of named graph definitions the service can run.
//
// Each entry is a factory that builds a fresh pregel.Graph from request
// parameters. Factories are called once per run so runs never share state.
package graphs
