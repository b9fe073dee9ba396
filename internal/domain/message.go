package domain

// Message is rendered notification content. SMS channels use Text only.
type Message struct {
	Subject string
	Text    string
	HTML    string
}
