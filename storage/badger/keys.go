package badger

const embeddingPrefix = "embvec"

func embeddingKeyPrefix() []byte {
	return []byte(embeddingPrefix + ":")
}

// makeEmbeddingKey namespaces a content key: embvec:<key>.
func makeEmbeddingKey(key string) []byte {
	return append(embeddingKeyPrefix(), key...)
}
