// Package types defines the core data structures for the memory engine:
// memory units, entities, and the relationships the graph layer derives
// between them.
package types

// Entity type constants - 20+ types for comprehensive entity modeling
const (
	// Core entity types
	EntityTypePerson       = "person"
	EntityTypeOrganization = "organization"
	EntityTypeProject      = "project"
	EntityTypeLocation     = "location"
	EntityTypeEvent        = "event"

	// Document and content types
	EntityTypeDocument    = "document"
	EntityTypeNote        = "note"
	EntityTypeFile        = "file"
	EntityTypeURL         = "url"
	EntityTypeEmail       = "email"
	EntityTypeMessage     = "message"

	// Knowledge types
	EntityTypeConcept = "concept"
	EntityTypeTask    = "task"

	// Technical types
	EntityTypeRepository  = "repository"
	EntityTypeCodeSnippet = "code_snippet"
	EntityTypeAPI         = "api"
	EntityTypeDatabase    = "database"
	EntityTypeServer      = "server"

	// Development types
	EntityTypeTool      = "tool"
	EntityTypeFramework = "framework"
	EntityTypeLanguage  = "language"
	EntityTypeLibrary   = "library"
)

// ValidEntityTypes is a slice of all valid entity types for validation
var ValidEntityTypes = []string{
	EntityTypePerson,
	EntityTypeOrganization,
	EntityTypeProject,
	EntityTypeLocation,
	EntityTypeEvent,
	EntityTypeDocument,
	EntityTypeNote,
	EntityTypeFile,
	EntityTypeURL,
	EntityTypeEmail,
	EntityTypeMessage,
	EntityTypeConcept,
	EntityTypeTask,
	EntityTypeRepository,
	EntityTypeCodeSnippet,
	EntityTypeAPI,
	EntityTypeDatabase,
	EntityTypeServer,
	EntityTypeTool,
	EntityTypeFramework,
	EntityTypeLanguage,
	EntityTypeLibrary,
}

// Relationship type constants - bidirectional and asymmetric relationships
const (
	// Bidirectional relationships (symmetric)
	RelUses         = "uses"          // Entity uses another entity
	RelUsedBy       = "used_by"       // Inverse of uses
	RelKnows        = "knows"         // Person knows another person
	RelKnownBy      = "known_by"      // Inverse of knows
	RelWorksWith    = "works_with"    // Collaborative relationship
	RelMarriedTo    = "married_to"    // Marriage relationship
	RelFriendOf     = "friend_of"     // Friendship relationship
	RelColleagueOf  = "colleague_of"  // Professional relationship
	RelConflictsWith = "conflicts_with" // Conflicting relationship
	RelSiblingOf    = "sibling_of"    // Sibling relationship
	RelEmployedBy   = "employed_by"   // Employment relationship
	RelRelatesTo    = "relates_to"    // Generic relationship

	// Asymmetric relationship pairs
	RelParentOf   = "parent_of"   // Parent-child relationship
	RelChildOf    = "child_of"    // Child-parent relationship
	RelDependsOn  = "depends_on"  // Dependency relationship
	RelRequiredBy = "required_by" // Inverse dependency
	RelContains   = "contains"    // Container relationship
	RelBelongsTo  = "belongs_to"  // Membership relationship
	RelBlocks     = "blocks"      // Blocking relationship
	RelBlockedBy  = "blocked_by"  // Inverse blocking

	// One-way relationships
	RelImplements = "implements" // Implementation relationship
	RelAddresses  = "addresses"  // Addresses/solves relationship
	RelSupersedes = "supersedes" // Replacement relationship
	RelReferences = "references" // Reference relationship
	RelDocuments  = "documents"  // Documentation relationship
	RelWorksOn    = "works_on"   // Person works on project/task

	// Employment & org structure
	RelEmploys   = "employs"    // Org employs person (inverse of employed_by)
	RelManages   = "manages"    // Person/org manages another
	RelManagedBy = "managed_by" // Inverse of manages
	RelReportsTo = "reports_to" // Employee reports to manager
	RelLeads     = "leads"      // Person leads team/project
	RelLedBy     = "led_by"     // Inverse of leads
	RelMemberOf  = "member_of"  // Person/org is member of group
	RelHasMember = "has_member" // Group has a member

	// Ownership & creation
	RelOwns      = "owns"        // Entity owns another
	RelOwnedBy   = "owned_by"    // Inverse of owns
	RelFounded   = "founded"     // Person/org founded another org
	RelFoundedBy = "founded_by"  // Org was founded by person/org
	RelCreates   = "creates"     // Entity creates artifact
	RelCreatedBy = "created_by"  // Artifact created by entity

	// Service & supply
	RelProvides   = "provides"    // Entity provides service/resource
	RelProvidedBy = "provided_by" // Service provided by entity

	// Collaboration
	RelPartnersWith   = "partners_with"   // Partnership (bidirectional)
	RelContributesTo  = "contributes_to"  // Entity contributes to another
)

// ValidEntityRelationTypes is a slice of all valid entity-to-entity
// relationship types for validation (distinct from the memory-to-memory
// RelationshipType enum in enums.go).
var ValidEntityRelationTypes = []string{
	// Symmetric / bidirectional
	RelUses, RelUsedBy,
	RelKnows, RelKnownBy,
	RelWorksWith,
	RelMarriedTo,
	RelFriendOf,
	RelColleagueOf,
	RelConflictsWith,
	RelSiblingOf,
	RelPartnersWith,
	// Employment & org structure
	RelEmployedBy, RelEmploys,
	RelManages, RelManagedBy,
	RelReportsTo,
	RelLeads, RelLedBy,
	RelMemberOf, RelHasMember,
	// Ownership & creation
	RelOwns, RelOwnedBy,
	RelFounded, RelFoundedBy,
	RelCreates, RelCreatedBy,
	// Service & supply
	RelProvides, RelProvidedBy,
	// Contribution
	RelContributesTo,
	// Hierarchical
	RelParentOf, RelChildOf,
	RelContains, RelBelongsTo,
	// Technical
	RelDependsOn, RelRequiredBy,
	RelBlocks, RelBlockedBy,
	RelImplements,
	RelAddresses,
	RelSupersedes,
	RelReferences,
	RelDocuments,
	RelWorksOn,
	// Generic
	RelRelatesTo,
}

// IsValidEntityType checks if the given entity type is valid
func IsValidEntityType(entityType string) bool {
	for _, validType := range ValidEntityTypes {
		if validType == entityType {
			return true
		}
	}
	return false
}

// IsValidEntityRelationType checks if the given entity-to-entity
// relationship type is valid.
func IsValidEntityRelationType(relType string) bool {
	for _, validType := range ValidEntityRelationTypes {
		if validType == relType {
			return true
		}
	}
	return false
}

// singleValuedEntityRelations are entity-to-entity relationship types that
// can only hold one target at a time for a given source entity; the
// structural contradiction detector (internal/duplicate) flags a second,
// distinct target for one of these as a conflicting-relationship defect.
var singleValuedEntityRelations = map[string]bool{
	RelMarriedTo:  true,
	RelParentOf:   true,
	RelChildOf:    true,
	RelSupersedes: true,
}

// IsSingleValuedEntityRelation reports whether relType may only ever point
// at one target entity at a time.
func IsSingleValuedEntityRelation(relType string) bool {
	return singleValuedEntityRelations[relType]
}
