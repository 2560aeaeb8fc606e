package events

// Topic constants for domain events emitted by the cart engine.
const (
	TopicItemQuantityChanged = "cart.item_quantity_changed"
	TopicItemRemoved         = "cart.item_removed"
	TopicShopRemoved         = "cart.shop_removed"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicItemQuantityChanged,
		TopicItemRemoved,
		TopicShopRemoved,
	}
}
