package domain

import "time"

// Companion is the record written once at wizard completion. It is never
// updated afterwards.
type Companion struct {
	ID           string     `json:"id" bson:"_id"`
	UserID       string     `json:"userId" bson:"user_id"`
	Name         string     `json:"name" bson:"name"`
	Type         string     `json:"type" bson:"type"`
	Attributes   Attributes `json:"attributes" bson:"attributes"`
	Personality  []string   `json:"personality" bson:"personality"`
	FacePrompt   string     `json:"facePrompt" bson:"face_prompt"`
	BodyPrompt   string     `json:"bodyPrompt" bson:"body_prompt"`
	FaceImageURL string     `json:"faceImageUrl" bson:"face_image_url"`
	BodyImageURL string     `json:"bodyImageUrl" bson:"body_image_url"`
	FaceImageKey string     `json:"-" bson:"face_image_key"`
	BodyImageKey string     `json:"-" bson:"body_image_key"`
	CreatedAt    time.Time  `json:"createdAt" bson:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" bson:"updated_at"`
}

// CompanionDraft is what the wizard hands to persistence.
type CompanionDraft struct {
	Name        string
	Type        string
	Attributes  Attributes
	Personality []string
}

// GenerationResult is the normalized output of an image service call.
// ImageURL may be empty when only ImageURLs is populated and vice versa.
type GenerationResult struct {
	ImageURL  string   `json:"imageUrl,omitempty"`
	ImageURLs []string `json:"imageUrls,omitempty"`
	Prompt    string   `json:"prompt"`
}

// HasImage reports whether the result carries at least one image URL.
func (r GenerationResult) HasImage() bool {
	if r.ImageURL != "" {
		return true
	}
	for _, u := range r.ImageURLs {
		if u != "" {
			return true
		}
	}
	return false
}

// Variants lists every image URL in the result, falling back to ImageURL.
func (r GenerationResult) Variants() []string {
	out := make([]string, 0, len(r.ImageURLs)+1)
	for _, u := range r.ImageURLs {
		if u != "" {
			out = append(out, u)
		}
	}
	if len(out) == 0 && r.ImageURL != "" {
		out = append(out, r.ImageURL)
	}
	return out
}

// PrimaryURL returns ImageURL or the first variant.
func (r GenerationResult) PrimaryURL() string {
	if r.ImageURL != "" {
		return r.ImageURL
	}
	if v := r.Variants(); len(v) > 0 {
		return v[0]
	}
	return ""
}

// Wallet is a user's coin balance row.
type Wallet struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Coins     int       `json:"coins"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
