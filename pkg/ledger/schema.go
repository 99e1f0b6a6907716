package ledger

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by instance name so that
// several appraise deployments can share one Redis server.
//
// Key pattern: appraise:{instance_name}:{entity}:{id}

// EvaluationKey returns the Redis key for the evaluation of a contribution.
// Pattern: appraise:{instance_name}:evaluation:{fingerprint}
func EvaluationKey(instanceName, fingerprint string) string {
	return fmt.Sprintf("appraise:%s:evaluation:%s", instanceName, fingerprint)
}

// DeveloperEvaluationsKey returns the Redis key for a developer's evaluation index.
// The ZSET members are fingerprints scored by evaluation time in milliseconds.
// Pattern: appraise:{instance_name}:developer:{developer}:evaluations
func DeveloperEvaluationsKey(instanceName, developer string) string {
	return fmt.Sprintf("appraise:%s:developer:%s:evaluations", instanceName, developer)
}

// ProjectPopularityKey returns the Redis key for the project popularity hash.
// Fields are project identifiers, values are scores in [0,100].
// Pattern: appraise:{instance_name}:project_popularity
func ProjectPopularityKey(instanceName string) string {
	return fmt.Sprintf("appraise:%s:project_popularity", instanceName)
}

// EvaluationEventsChannel returns the Pub/Sub channel name for evaluation events.
// Pattern: appraise:{instance_name}:evaluation_events
func EvaluationEventsChannel(instanceName string) string {
	return fmt.Sprintf("appraise:%s:evaluation_events", instanceName)
}
