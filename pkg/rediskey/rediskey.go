package rediskey

import "fmt"

const (
	SequencePrefix = "seq"
	OfferPrefix    = "offer"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildDailySequenceKey returns "seq:{prefix}:{yymmdd}"
func BuildDailySequenceKey(prefix, day string) string {
	return NamespaceKey(SequencePrefix, fmt.Sprintf("%s:%s", prefix, day))
}

// BuildOfferExternalKey returns "offer:{provider}:{externalOfferID}"
func BuildOfferExternalKey(provider, externalOfferID string) string {
	return NamespaceKey(OfferPrefix, fmt.Sprintf("%s:%s", provider, externalOfferID))
}
