package cache

import "strings"

const (
	GlobalKeyPrefix = "quizforge"
)

// Object types stored under the global prefix.
const (
	ServiceJobs      = "jobs"
	ServiceEmbedding = "embedding"
	ServiceGrades    = "grades"
)

// GenerateCacheKey generates a cache key for a given service, object type, and identifier.
// If paramsKey are provided, they are joined by "_" and appended to the cache key.
func GenerateCacheKey(serviceName, objectType, identifier string, paramsKey ...string) string {
	baseKey := strings.Join([]string{GlobalKeyPrefix, serviceName, objectType, identifier}, ":")
	if len(paramsKey) > 0 {
		return strings.Join([]string{baseKey, strings.Join(paramsKey, "_")}, ":")
	}
	return baseKey
}

// JobSnapshotKey is the key holding the JSON snapshot of a generation job.
func JobSnapshotKey(jobID string) string {
	return GenerateCacheKey(ServiceJobs, "snapshot", jobID)
}

// EmbeddingKey is the key holding a cached embedding of a text hash for one model.
func EmbeddingKey(source, model, textHash string) string {
	return GenerateCacheKey(ServiceEmbedding, source, textHash, model)
}

// GradeKey is the key holding the cached grade of one answer to one question.
func GradeKey(questionHash, answerHash string) string {
	return GenerateCacheKey(ServiceGrades, "answer", questionHash, answerHash)
}
