// Copyright 2025 Poiesic Systems
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
)

// ValidateEntity validates an Entity according to domain rules.
//
// Validation rules:
//   - Name must not be empty
//   - Type must not be empty
//   - Confidence must be within 0..1
//
// NOT validated (populated by the persistence sink):
//   - RunID
//   - UpdatedAt
func ValidateEntity(entity *Entity) error {
	if entity == nil {
		return fmt.Errorf("%w: entity is nil", ErrInvalidEntity)
	}

	if entity.Name == "" {
		return fmt.Errorf("%w: %w", ErrInvalidEntity, ErrEmptyEntityName)
	}

	if entity.Type == "" {
		return fmt.Errorf("%w: %w", ErrInvalidEntity, ErrEmptyEntityType)
	}

	if !IsValidConfidence(entity.Confidence) {
		return fmt.Errorf("%w: %w: %v", ErrInvalidEntity, ErrInvalidConfidence, entity.Confidence)
	}

	return nil
}

// ValidateRelationship validates a Relationship according to domain rules.
//
// Validation rules:
//   - Source name/type and target name/type must not be empty
//   - Type must not be empty
//   - Confidence must be within 0..1
func ValidateRelationship(rel *Relationship) error {
	if rel == nil {
		return fmt.Errorf("%w: relationship is nil", ErrInvalidRelationship)
	}

	if rel.SourceName == "" || rel.SourceType == "" {
		return fmt.Errorf("%w: source: %w", ErrInvalidRelationship, ErrEmptyEndpoint)
	}

	if rel.TargetName == "" || rel.TargetType == "" {
		return fmt.Errorf("%w: target: %w", ErrInvalidRelationship, ErrEmptyEndpoint)
	}

	if rel.Type == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRelationship, ErrEmptyRelationshipType)
	}

	if !IsValidConfidence(rel.Confidence) {
		return fmt.Errorf("%w: %w: %v", ErrInvalidRelationship, ErrInvalidConfidence, rel.Confidence)
	}

	return nil
}

// IsValidConfidence checks if a confidence score is within 0..1.
func IsValidConfidence(c float64) bool {
	return c >= 0 && c <= 1
}
