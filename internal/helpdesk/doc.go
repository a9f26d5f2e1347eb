// Package helpdesk defines the domain model for the request routing
// pipeline: the persisted request record, the slim queue envelope, the
// transient enriched view, the routing decision, and the Store interface
// the pipeline reads records through.
package helpdesk
