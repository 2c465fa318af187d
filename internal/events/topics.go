package events

// Topic constants for domain events emitted by the voucher lifecycle.
const (
	TopicVoucherIssued      = "voucher.issued"
	TopicVoucherRedeemed    = "voucher.redeemed"
	TopicVoucherUnfulfilled = "voucher.unfulfilled"
	TopicVoucherInvalidated = "voucher.invalidated"
	TopicVoucherDeleted     = "voucher.deleted"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicVoucherIssued,
		TopicVoucherRedeemed,
		TopicVoucherUnfulfilled,
		TopicVoucherInvalidated,
		TopicVoucherDeleted,
	}
}

// IsKnown reports whether topic is one of DefaultTopics.
func IsKnown(topic string) bool {
	for _, t := range DefaultTopics() {
		if t == topic {
			return true
		}
	}
	return false
}
