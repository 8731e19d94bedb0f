package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"voice-receptionist/pkg/logger"

	"github.com/gin-gonic/gin"
)

const HeaderTwilioSignature = "X-Twilio-Signature"

// ComputeSignature implements Twilio's request signing scheme:
// base64(HMAC-SHA1(authToken, fullURL + sorted key/value pairs of the POST body)).
// Ref: https://www.twilio.com/docs/usage/security#validating-requests
func ComputeSignature(authToken, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		vs := append([]string(nil), form[k]...)
		sort.Strings(vs)
		for _, v := range vs {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ValidSignature reports whether signature matches the request contents.
func ValidSignature(authToken, fullURL string, form url.Values, signature string) bool {
	if signature == "" {
		return false
	}
	want := ComputeSignature(authToken, fullURL, form)
	return hmac.Equal([]byte(want), []byte(signature))
}

// RequireSignature rejects webhook requests that were not signed with authToken.
// The signed URL is rebuilt the same way callback URLs are built.
func RequireSignature(authToken, publicBase string) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.FromGin(c)

		if err := c.Request.ParseForm(); err != nil {
			log.Warn("twilio webhook parse failed", "err", err)
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		fullURL := CallbackURL(c.Request, publicBase, c.Request.URL.RequestURI())
		if !ValidSignature(authToken, fullURL, c.Request.PostForm, c.GetHeader(HeaderTwilioSignature)) {
			log.Warn("twilio signature rejected", "url", fullURL, "call_sid", c.Request.PostForm.Get(FieldCallSid))
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}
