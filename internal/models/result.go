package models

import (
	"encoding/json"
	"fmt"
)

// ItemError records a failure on one item of a batch operation. The batch
// continues and reports it alongside its counts.
type ItemError struct {
	Ref string `json:"ref"` // e.g. "event:42" or "community:7"
	Op  string `json:"op"`  // e.g. "create", "delete_remote"
	Err error  `json:"-"`
}

func (e ItemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Ref, e.Err)
}

func (e ItemError) Unwrap() error {
	return e.Err
}

func (e ItemError) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Ref   string `json:"ref"`
		Op    string `json:"op"`
		Error string `json:"error"`
	}{e.Ref, e.Op, msg})
}

func EventRef(id int64) string {
	return fmt.Sprintf("event:%d", id)
}

func CommunityRef(id int64) string {
	return fmt.Sprintf("community:%d", id)
}

func RuleRef(id int64) string {
	return fmt.Sprintf("rule:%d", id)
}

func RemoteRef(id string) string {
	return "remote:" + id
}
