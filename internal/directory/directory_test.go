package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/yazid-hub/GMOA/internal/auth"
	"github.com/yazid-hub/GMOA/internal/db"
	"github.com/yazid-hub/GMOA/internal/gmaoerr"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func TestCreateUser_AndActor(t *testing.T) {
	ctx := context.Background()
	u := NewUsers(testDB(t))

	if _, err := u.CreateUser(ctx, CreateUserOpts{ID: "alice", Name: "Alice", Email: "Alice@Plant.example", Role: auth.RoleTechnician}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	actor, err := u.Actor(ctx, "alice")
	if err != nil {
		t.Fatalf("Actor: %v", err)
	}
	if actor.Role != auth.RoleTechnician {
		t.Errorf("Role = %q, want Technician", actor.Role)
	}
	user, _ := u.GetUser(ctx, "alice")
	if user.Email != "alice@plant.example" || !user.Active {
		t.Errorf("user = %+v", user)
	}

	if _, err := u.CreateUser(ctx, CreateUserOpts{ID: "alice", Role: auth.RoleAdmin}); !errors.Is(err, gmaoerr.ErrConcurrencyConflict) {
		t.Errorf("duplicate user: err = %v, want ErrConcurrencyConflict", err)
	}
}

func TestCreateUser_RoleMandatory(t *testing.T) {
	u := NewUsers(testDB(t))
	_, err := u.CreateUser(context.Background(), CreateUserOpts{ID: "bob"})
	if !errors.Is(err, gmaoerr.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestActor_Inactive(t *testing.T) {
	ctx := context.Background()
	u := NewUsers(testDB(t))
	u.CreateUser(ctx, CreateUserOpts{ID: "carl", Role: auth.RoleOperator})
	if err := u.SetActive(ctx, "carl", false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if _, err := u.Actor(ctx, "carl"); !errors.Is(err, gmaoerr.ErrPermissionDenied) {
		t.Errorf("err = %v, want ErrPermissionDenied", err)
	}
	if _, err := u.Actor(ctx, "nobody"); !errors.Is(err, gmaoerr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestTeams(t *testing.T) {
	ctx := context.Background()
	u := NewUsers(testDB(t))
	u.CreateUser(ctx, CreateUserOpts{ID: "alice", Role: auth.RoleTechnician})
	u.CreateUser(ctx, CreateUserOpts{ID: "bob", Role: auth.RoleTechnician})
	if _, err := u.CreateTeam(ctx, "elec", "Electricite"); err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := u.AddTeamMember(ctx, "elec", "alice"); err != nil {
			t.Fatalf("AddTeamMember #%d: %v", i, err)
		}
	}
	if err := u.AddTeamMember(ctx, "ghost", "alice"); !errors.Is(err, gmaoerr.ErrNotFound) {
		t.Errorf("unknown team: err = %v, want ErrNotFound", err)
	}

	ok, err := u.IsTeamMember(ctx, "elec", "alice")
	if err != nil || !ok {
		t.Errorf("IsTeamMember(alice) = %v, %v", ok, err)
	}
	ok, _ = u.IsTeamMember(ctx, "elec", "bob")
	if ok {
		t.Error("bob should not be a member")
	}
	members, _ := u.TeamMembers(ctx, "elec")
	if len(members) != 1 || members[0] != "alice" {
		t.Errorf("members = %v", members)
	}

	if err := u.RemoveTeamMember(ctx, "elec", "alice"); err != nil {
		t.Fatalf("RemoveTeamMember: %v", err)
	}
	if err := u.RemoveTeamMember(ctx, "elec", "alice"); !errors.Is(err, gmaoerr.ErrNotFound) {
		t.Errorf("second remove: err = %v, want ErrNotFound", err)
	}
}

func TestUsersWithRole(t *testing.T) {
	ctx := context.Background()
	u := NewUsers(testDB(t))
	u.CreateUser(ctx, CreateUserOpts{ID: "m1", Role: auth.RoleManager})
	u.CreateUser(ctx, CreateUserOpts{ID: "a1", Role: auth.RoleAdmin})
	u.CreateUser(ctx, CreateUserOpts{ID: "t1", Role: auth.RoleTechnician})
	u.CreateUser(ctx, CreateUserOpts{ID: "m2", Role: auth.RoleManager})
	u.SetActive(ctx, "m2", false)

	ids, err := u.UsersWithRole(ctx, auth.RoleManager, auth.RoleAdmin)
	if err != nil {
		t.Fatalf("UsersWithRole: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a1" || ids[1] != "m1" {
		t.Errorf("ids = %v, want [a1 m1]", ids)
	}
}

func TestAssets(t *testing.T) {
	ctx := context.Background()
	a := NewAssets(testDB(t))
	if _, err := a.Create(ctx, CreateAssetOpts{ID: "P-101", Name: "Pompe", Category: "pompes"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := a.Get(ctx, "P-101")
	if err != nil || got.Status != "in_service" {
		t.Errorf("Get = %+v, %v", got, err)
	}
	if _, err := a.Get(ctx, "X"); !errors.Is(err, gmaoerr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := a.Create(ctx, CreateAssetOpts{ID: "P-102"}); !errors.Is(err, gmaoerr.ErrValidation) {
		t.Errorf("missing name: err = %v, want ErrValidation", err)
	}
	list, _ := a.List(ctx, "pompes")
	if len(list) != 1 {
		t.Errorf("List = %v", list)
	}
}
