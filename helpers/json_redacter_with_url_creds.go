package helpers

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"

	"code.cloudfoundry.org/lager/v3"
)

// Telegram puts the bot token in the request path: https://api.telegram.org/bot<id>:<secret>/sendMessage
const botTokenURLPattern = `(/bot)(\d+):[A-Za-z0-9_-]+`

var botTokenMatcher = regexp.MustCompile(botTokenURLPattern)

type JSONRedacterWithURLCred struct {
	jsonRedacter   *lager.JSONRedacter
	urlCredMatcher *regexp.Regexp
}

func NewJSONRedacterWithURLCred(keyPatterns []string, valuePatterns []string) (*JSONRedacterWithURLCred, error) {
	jsonRedacter, err := lager.NewJSONRedacter(keyPatterns, valuePatterns)
	if err != nil {
		return nil, err
	}
	return &JSONRedacterWithURLCred{
		jsonRedacter:   jsonRedacter,
		urlCredMatcher: botTokenMatcher,
	}, nil
}

// RedactBotToken hides the secret half of a bot token embedded in a URL or error message.
func RedactBotToken(s string) string {
	return botTokenMatcher.ReplaceAllString(s, `$1$2:*REDACTED*`)
}

func (r JSONRedacterWithURLCred) Redact(data []byte) []byte {
	var jsonBlob interface{}
	if len(data) == 0 {
		return data
	}
	err := json.Unmarshal(data, &jsonBlob)
	if err != nil {
		return errorToBytes(err)
	}
	jsonBlob = r.redactValue(jsonBlob)

	data, err = json.Marshal(jsonBlob)
	if err != nil {
		return errorToBytes(err)
	}

	return r.jsonRedacter.Redact(data)
}

func (r JSONRedacterWithURLCred) redactValue(data interface{}) interface{} {
	switch v := data.(type) {
	case []interface{}:
		for i := range v {
			v[i] = r.redactValue(v[i])
		}
		return v
	case map[string]interface{}:
		for k, val := range v {
			v[k] = r.redactValue(val)
		}
		return v
	case string:
		return r.urlCredMatcher.ReplaceAllString(v, `$1$2:*REDACTED*`)
	default:
		return v
	}
}

func errorToBytes(err error) []byte {
	var content []byte
	var errType *json.UnsupportedTypeError
	if errors.As(err, &errType) {
		data := map[string]interface{}{"lager serialisation error": errType.Error()}
		content, err = json.Marshal(data)
	}
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s", err.Error())
		return content
	}
	return content
}
