package quickstart

import (
	"fmt"

	"github.com/google/uuid"
)

// Family is the record the demo stores, partitioned by LastName.
type Family struct {
	ID           string   `json:"id"`
	LastName     string   `json:"lastName"`
	District     string   `json:"district"`
	Parents      []Parent `json:"parents"`
	Children     []Child  `json:"children"`
	Address      *Address `json:"address"`
	IsRegistered bool     `json:"isRegistered"`
	RunID        string   `json:"runId,omitempty"`
}

type Parent struct {
	FamilyName string `json:"familyName,omitempty"`
	FirstName  string `json:"firstName"`
}

type Child struct {
	FamilyName string `json:"familyName,omitempty"`
	FirstName  string `json:"firstName"`
	Gender     string `json:"gender"`
	Grade      int    `json:"grade"`
	Pets       []Pet  `json:"pets,omitempty"`
}

type Pet struct {
	GivenName string `json:"givenName"`
}

type Address struct {
	State  string `json:"state"`
	County string `json:"county"`
	City   string `json:"city"`
}

func familyID(lastName string) string {
	return fmt.Sprintf("%s-%s", lastName, uuid.NewString())
}

// AndersenFamily returns a new Andersen family with a unique id.
func AndersenFamily() *Family {
	return &Family{
		ID:       familyID("Andersen"),
		LastName: "Andersen",
		District: "WA5",
		Parents: []Parent{
			{FirstName: "Thomas"},
			{FirstName: "Mary Kay"},
		},
		Children: []Child{
			{FirstName: "Henriette Thaulow", Gender: "female", Grade: 5, Pets: []Pet{{GivenName: "Fluffy"}}},
		},
		Address:      &Address{State: "WA", County: "King", City: "Seattle"},
		IsRegistered: true,
	}
}

// WakefieldFamily returns a new Wakefield family with a unique id.
func WakefieldFamily() *Family {
	return &Family{
		ID:       familyID("Wakefield"),
		LastName: "Wakefield",
		District: "NY23",
		Parents: []Parent{
			{FamilyName: "Wakefield", FirstName: "Robin"},
			{FamilyName: "Miller", FirstName: "Ben"},
		},
		Children: []Child{
			{FamilyName: "Merriam", FirstName: "Jesse", Gender: "female", Grade: 8, Pets: []Pet{{GivenName: "Goofy"}, {GivenName: "Shadow"}}},
			{FamilyName: "Miller", FirstName: "Lisa", Gender: "female", Grade: 1},
		},
		Address:      &Address{State: "NY", County: "Manhattan", City: "NY"},
		IsRegistered: true,
	}
}

// JohnsonFamily returns a new Johnson family with a unique id.
func JohnsonFamily() *Family {
	return &Family{
		ID:       familyID("Johnson"),
		LastName: "Johnson",
		District: "CA11",
		Parents: []Parent{
			{FirstName: "John"},
			{FirstName: "Lili"},
		},
		Address:      &Address{State: "CA", County: "Santa Clara", City: "San Jose"},
		IsRegistered: false,
	}
}

// SmithFamily returns a new Smith family with a unique id.
func SmithFamily() *Family {
	return &Family{
		ID:       familyID("Smith"),
		LastName: "Smith",
		District: "TX7",
		Parents: []Parent{
			{FirstName: "Zachary"},
		},
		Children: []Child{
			{FirstName: "Chris", Gender: "male", Grade: 3},
		},
		Address:      &Address{State: "TX", County: "Travis", City: "Austin"},
		IsRegistered: true,
	}
}

// Families returns the four demo families in insertion order.
func Families() []*Family {
	return []*Family{AndersenFamily(), WakefieldFamily(), JohnsonFamily(), SmithFamily()}
}
