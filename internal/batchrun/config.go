package batchrun

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/okian/apr/internal/domain/model"
)

// Config holds configuration for a one-shot batch run.
type Config struct {
	UserIDs        []model.UserID // Users to compute
	Mode           model.Mode     // sequential or concurrent
	MaxConcurrency int            // Worker bound for concurrent mode, 0 for unbounded
	Timeout        time.Duration  // Per provider request timeout
	EquifaxURL     string         // First provider endpoint template
	ExperianURL    string         // Second provider endpoint template
	Verbose        bool           // Enable debug logging
	Out            io.Writer      // Where results are printed
}

// ParseUserIDs parses a comma-separated id list such as "1, 2,3".
func ParseUserIDs(s string) ([]model.UserID, error) {
	var ids []model.UserID
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q: %w", part, err)
		}
		ids = append(ids, model.UserID(n))
	}
	return ids, nil
}

// FromInts converts config-file ids.
func FromInts(in []int) []model.UserID {
	ids := make([]model.UserID, len(in))
	for i, n := range in {
		ids[i] = model.UserID(n)
	}
	return ids
}
