package models

// Card is a flashcard as returned by the backend
type Card struct {
	CardID string   `json:"card_id"`
	Front  string   `json:"front"`
	Back   string   `json:"back"`
	Labels []string `json:"labels"`
}

// CardInput is the body sent when creating or updating a card
type CardInput struct {
	Front  string   `json:"front"`
	Back   string   `json:"back"`
	Labels []string `json:"labels"`
}
