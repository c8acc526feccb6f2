package generic

import (
	"context"
	"time"
)

// Employee is one effective version of a person's human record. The natural
// key is PersonalID; resolution never looks employees up by RecordID.
type Employee struct {
	Version
	PersonalID         string `json:"personal_id"`
	EmployeeCode       string `json:"employee_code"`
	LastName           string `json:"last_name"`
	FirstName          string `json:"first_name"`
	WorkPlaceCode      string `json:"work_place_code"`
	EmploymentContract string `json:"employment_contract_code"`
	SectionCode        string `json:"section_code"`
	PositionCode       string `json:"position_code"`
}

func (e Employee) NaturalKey() string { return e.PersonalID }

// EmployeeDirectory answers human-record queries by personal id.
type EmployeeDirectory interface {
	FindAsOf(ctx context.Context, personalID string, date time.Time) (Employee, bool, error)
	FindHistory(ctx context.Context, personalID string) ([]Employee, error)
	FindAllAsOf(ctx context.Context, date time.Time) ([]Employee, error)
}

// DirectoryFromStore exposes an employee EffectiveStore as a directory.
func DirectoryFromStore(s EffectiveStore[Employee]) EmployeeDirectory {
	return employeeDirectory{s}
}

type employeeDirectory struct {
	store EffectiveStore[Employee]
}

func (d employeeDirectory) FindAsOf(ctx context.Context, personalID string, date time.Time) (Employee, bool, error) {
	return d.store.FindLatestAsOf(ctx, personalID, date)
}

func (d employeeDirectory) FindHistory(ctx context.Context, personalID string) ([]Employee, error) {
	return d.store.FindHistory(ctx, personalID)
}

func (d employeeDirectory) FindAllAsOf(ctx context.Context, date time.Time) ([]Employee, error) {
	return d.store.FindAllAsOf(ctx, date)
}
