package delivery

import (
	"testing"
	"time"

	"github.com/go-2fa-confirm/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecurityCodeMessage(t *testing.T) {
	msg, err := SecurityCodeMessage("user@example.com", "123456", "10 minutes")
	require.NoError(t, err)
	assert.Equal(t, "Your security code for user@example.com", msg.Subject)
	assert.Contains(t, msg.Text, "123456")
	assert.Contains(t, msg.Text, "10 minutes")
	assert.Contains(t, msg.HTML, "<strong>123456</strong>")
}

func TestConfirmRequestMessage_WithDetails(t *testing.T) {
	details := RequestDetails(&domain.MultisigRequest{
		RequestID:  7,
		ReceiverID: "alice.near",
		Actions:    []domain.MultisigAction{{Type: "add_key"}, {Type: "transfer"}},
	})
	assert.Equal(t, []string{"add key on alice.near", "transfer on alice.near"}, details)

	msg, err := ConfirmRequestMessage("alice.near", "add a full access key", details, "938423", "10 minutes")
	require.NoError(t, err)
	assert.Equal(t, "Your account alice.near wants to confirm a request", msg.Subject)
	assert.Contains(t, msg.Text, "add a full access key")
	assert.Contains(t, msg.Text, "  - add key on alice.near")
	assert.Contains(t, msg.Text, "The confirmation code is 938423")
	assert.Contains(t, msg.HTML, "<li>transfer on alice.near</li>")
}

func TestConfirmRequestMessage_EscapesHTML(t *testing.T) {
	msg, err := ConfirmRequestMessage("alice.near", "<script>x</script>", nil, "000001", "10 minutes")
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "<script>")
	assert.Contains(t, msg.HTML, "&lt;script&gt;")
	assert.NotContains(t, msg.HTML, "<ul>")
}

func TestRequestDetails_Nil(t *testing.T) {
	assert.Nil(t, RequestDetails(nil))
}

func TestValidity(t *testing.T) {
	assert.Equal(t, "10 minutes", Validity(10*time.Minute))
	assert.Equal(t, "1 minute", Validity(40*time.Second))
	assert.Equal(t, "15 minutes", Validity(15*time.Minute+10*time.Second))
}
