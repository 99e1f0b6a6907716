// Package ledger provides the shared data model of the appraise engine and the
// Redis-backed store where scored contributions are recorded.
//
// # Overview
//
// A Contribution is a unit of submitted code plus metadata. Each scoring agent
// produces one Decision for it; the orchestrator bundles the decisions, the
// contribution fingerprint and the consensus estimate into an Evaluation.
//
// Fingerprints are deterministic SHA-256 digests over a canonical encoding of
// {developer, code, timestamp, language}. They are lowercase hex strings and are
// used as the storage key for evaluations.
//
// # Usage Example
//
//	c := &ledger.Contribution{
//		Developer: "0xabc",
//		Code:      "function add(a,b){return a+b;}",
//		Timestamp: "1718000000000",
//	}
//	if err := c.Validate(); err != nil {
//		log.Fatal(err)
//	}
//	fp := ledger.Fingerprint(c)
//	key := ledger.EvaluationKey("default", fp)
//	// key = "appraise:default:evaluation:<fingerprint>"
//
// # Redis Schema
//
// All keys are namespaced by instance name:
//
// Evaluations: appraise:{instance}:evaluation:{fingerprint} (hash)
// Developer index: appraise:{instance}:developer:{developer}:evaluations (zset, score = timestamp ms)
// Project popularity: appraise:{instance}:project_popularity (hash, project -> 0..100)
//
// Pub/Sub channel: appraise:{instance}:evaluation_events
package ledger
