package helpers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"code.cloudfoundry.org/lager/v3"
)

type redactingWriterWithURLCredSink struct {
	writer                  io.Writer
	minLogLevel             lager.LogLevel
	writeL                  *sync.Mutex
	jsonRedacterWithURLCred *JSONRedacterWithURLCred
}

func NewRedactingWriterWithURLCredSink(writer io.Writer, minLogLevel lager.LogLevel, keyPatterns []string, valuePatterns []string) (lager.Sink, error) {
	jsonRedacterWithURLCred, err := NewJSONRedacterWithURLCred(keyPatterns, valuePatterns)
	if err != nil {
		return nil, err
	}
	return &redactingWriterWithURLCredSink{
		writer:                  writer,
		minLogLevel:             minLogLevel,
		writeL:                  new(sync.Mutex),
		jsonRedacterWithURLCred: jsonRedacterWithURLCred,
	}, nil
}

func (sink *redactingWriterWithURLCredSink) Log(log lager.LogFormat) {
	if log.LogLevel < sink.minLogLevel {
		return
	}
	content := newTimeLogFormat(log).toJSON()

	sink.writeL.Lock()
	defer sink.writeL.Unlock()
	_, _ = sink.writer.Write(sink.jsonRedacterWithURLCred.Redact(content))
	_, _ = sink.writer.Write([]byte("\n"))
}

// timeLogFormat adds a human readable RFC3339 timestamp next to lager's epoch one.
type timeLogFormat struct {
	lager.LogFormat
	LogTime string `json:"log_time"`
}

func newTimeLogFormat(log lager.LogFormat) timeLogFormat {
	epoch, err := strconv.ParseFloat(log.Timestamp, 64)
	if err != nil {
		epoch = 0
	}
	return timeLogFormat{
		LogFormat: log,
		LogTime:   time.Unix(int64(epoch), 0).UTC().Format(time.RFC3339),
	}
}

func (tlf timeLogFormat) toJSON() []byte {
	content, err := json.Marshal(tlf)
	if err == nil {
		return content
	}
	var unsupportedErr *json.UnsupportedTypeError
	var marshalErr *json.MarshalerError
	if errors.As(err, &unsupportedErr) || errors.As(err, &marshalErr) {
		tlf.Data = lager.Data{"lager serialisation error": err.Error(), "data_dump": fmt.Sprintf("%#v", tlf.Data)}
		if content, err = json.Marshal(tlf); err == nil {
			return content
		}
	}
	_, _ = fmt.Fprintf(os.Stderr, "%s", err.Error())
	return []byte("{}")
}
