package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	assert.Equal(t, "a_b_c_d", Sanitize("a.b@c+d"))
	assert.Equal(t, "plain-name_123", Sanitize("plain-name_123"))
	assert.Equal(t, "___", Sanitize(" /…"))
}

func TestCollectionName(t *testing.T) {
	assert.Equal(t, "ai_tutor_user_example_com", CollectionName("ai_tutor", "user@example.com"))
	// distinct raw owners may collide after sanitization; the payload
	// owner key is what separates them
	assert.Equal(t, CollectionName("p", "a.b"), CollectionName("p", "a@b"))
}
