package domain

// KeyPrefix namespaces every key the service persists.
const KeyPrefix = "chronolens:"
