package models

import (
	"sort"
	"strings"
)

// QARecord is the per-guild FAQ document in the dataset collection
type QARecord struct {
	ServerID string            `bson:"server_id" json:"server_id"`
	QAData   map[string]string `bson:"qa_data" json:"qa_data"`
}

// QAPair is a single question and its answer
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ParseBulkQA pairs consecutive lines of text as question and answer.
// Pairs where either side is blank after trimming are skipped, and a trailing
// unpaired line is dropped.
func ParseBulkQA(text string) []QAPair {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	pairs := []QAPair{}
	for i := 0; i+1 < len(lines); i += 2 {
		question := strings.TrimSpace(lines[i])
		answer := strings.TrimSpace(lines[i+1])
		if question == "" || answer == "" {
			continue
		}
		pairs = append(pairs, QAPair{Question: question, Answer: answer})
	}
	return pairs
}

// FormatQAExport renders a mapping as "question\nanswer" blocks separated by
// a blank line, ordered by question.
func FormatQAExport(qa map[string]string) string {
	questions := make([]string, 0, len(qa))
	for q := range qa {
		questions = append(questions, q)
	}
	sort.Strings(questions)

	blocks := make([]string, 0, len(questions))
	for _, q := range questions {
		blocks = append(blocks, q+"\n"+qa[q])
	}
	return strings.Join(blocks, "\n\n")
}
