package models

import (
	"errors"
	"strconv"
	"strings"
)

var (
	// ErrInvalidSetupType is returned for a setup type other than channel or category
	ErrInvalidSetupType = errors.New("setup type must be one of: channel, category")
	// ErrInvalidChannelID is returned when a channel or category ID is not a snowflake
	ErrInvalidChannelID = errors.New("channel or category ID must be a positive integer")
)

// SetupType selects whether the bot listens in one channel or a whole category
type SetupType string

// Setup types
const (
	SetupTypeChannel  SetupType = "channel"
	SetupTypeCategory SetupType = "category"
)

// SetupRecord is the per-guild bot setup document in the setup collection
type SetupRecord struct {
	ServerID            string    `bson:"server_id" json:"server_id"`
	SetupType           SetupType `bson:"setup_type" json:"setup_type"`
	ChannelOrCategoryID int64     `bson:"channel_or_category_id" json:"channel_or_category_id"`
}

// ParseSetupType validates a setup type string
func ParseSetupType(s string) (SetupType, error) {
	switch t := SetupType(strings.TrimSpace(s)); t {
	case SetupTypeChannel, SetupTypeCategory:
		return t, nil
	default:
		return "", ErrInvalidSetupType
	}
}

// ParseChannelID parses a snowflake given as a decimal string
func ParseChannelID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidChannelID
	}
	return id, nil
}
