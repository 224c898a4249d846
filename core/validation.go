// Copyright 2026 The Kraken Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"fmt"
	"time"
)

// ValidateItem validates an Item according to domain rules.
//
// Validation rules:
//   - ExternalID must not be empty
//   - Content must not be empty
//   - Channel must not be empty
//   - CreatedAt must not be in the future
//
// NOT validated (populated by the pipeline):
//   - Vector (can be empty until the item is embedded)
//   - InsertedAt/UpdatedAt (set by storage)
func ValidateItem(item *Item) error {
	if item == nil {
		return fmt.Errorf("%w: item is nil", ErrInvalidItem)
	}

	if item.ExternalID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidItem, ErrEmptyExternalID)
	}

	if item.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidItem, ErrEmptyContent)
	}

	if item.Channel == "" {
		return fmt.Errorf("%w: %w", ErrInvalidItem, ErrEmptyChannel)
	}

	if !IsValidTimestamp(item.CreatedAt) {
		return fmt.Errorf("%w: %w", ErrInvalidItem, ErrInvalidTimestamp)
	}

	return nil
}

// ValidateVector checks that a vector matches the expected dimension.
// A dimension of 0 disables the check.
func ValidateVector(vector []float32, dimension int) error {
	if dimension > 0 && len(vector) != dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), dimension)
	}
	return nil
}

// IsValidTimestamp checks if a timestamp is valid (not in the future).
func IsValidTimestamp(ts time.Time) bool {
	return !ts.After(time.Now())
}
