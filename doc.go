// Package srctrace holds the domain types shared across the system:
// content digests, discovered refs, stored artifacts and their
// aliases, bill-of-materials documents and the durable task records
// the ingestion pipeline runs on.
//
// Behavior lives in the subpackages: sync discovers refs from vendor
// indexes, ingest fetches and hashes the content, datastore persists
// everything, objstore archives the raw bytes.
package srctrace
