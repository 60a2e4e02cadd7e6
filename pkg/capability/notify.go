package capability

// Notification is published for every system.notify request. Displaying it
// is up to the observer.
type Notification struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Subtitle  string `json:"subtitle,omitempty"`
	PlaySound bool   `json:"playSound"`
}

// Notifier observes notifications. Implementations must not block.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) {
	f(n)
}

// ChannelNotifier publishes onto a buffered channel and drops notifications
// when the buffer is full.
type ChannelNotifier struct {
	C chan Notification
}

func NewChannelNotifier(buffer int) *ChannelNotifier {
	return &ChannelNotifier{C: make(chan Notification, buffer)}
}

func (c *ChannelNotifier) Notify(n Notification) {
	select {
	case c.C <- n:
	default:
	}
}
