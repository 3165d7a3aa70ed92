package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Article is one news item served by GET /api/news.
type Article struct {
	ID     ArticleID `json:"id"`
	Title  string    `json:"title"`
	Source string    `json:"source"`
	Time   string    `json:"time"`
	Image  string    `json:"image"`
	URL    string    `json:"url"`
}

// ArticleID is a live article's index or a backup item's string id. Indexes go
// on the wire as JSON numbers, anything else as a string.
type ArticleID string

// IndexID returns the id of the i-th live article.
func IndexID(i int) ArticleID {
	return ArticleID(strconv.Itoa(i))
}

func (id ArticleID) index() (int, bool) {
	n, err := strconv.Atoi(string(id))
	if err != nil || n < 0 || strconv.Itoa(n) != string(id) {
		return 0, false
	}
	return n, true
}

func (id ArticleID) MarshalJSON() ([]byte, error) {
	if n, ok := id.index(); ok {
		return []byte(strconv.Itoa(n)), nil
	}
	return json.Marshal(string(id))
}

func (id *ArticleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ArticleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("article id: %w", err)
	}
	*id = ArticleID(n.String())
	return nil
}
