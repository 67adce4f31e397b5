// Package services implements the driving ports: the ingest orchestrator
// that turns documents into indexed chunks, and the retrieval service that
// answers similarity queries and hands ranked context to the generation
// collaborator.
//
// Services depend only on the domain and the driven ports; concrete
// adapters are passed in at construction time.
package services
