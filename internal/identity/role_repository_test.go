package identity

import (
	"errors"
	"testing"
)

func TestRoleRepository_CreateAndGet(t *testing.T) {
	db := testDB(t)
	repo := NewRoleRepository(db)
	ctx := t.Context()

	role := &Role{Name: "Admin"}
	if err := repo.Create(ctx, role); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if role.ID == "" {
		t.Fatal("Create() should generate an ID")
	}

	byName, err := repo.GetByName(ctx, "Admin")
	if err != nil {
		t.Fatalf("GetByName() error = %v", err)
	}
	if byName.ID != role.ID {
		t.Errorf("GetByName().ID = %q, want %q", byName.ID, role.ID)
	}

	byID, err := repo.GetByID(ctx, role.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if byID.Name != "Admin" {
		t.Errorf("GetByID().Name = %q, want Admin", byID.Name)
	}
}

func TestRoleRepository_DuplicateName(t *testing.T) {
	db := testDB(t)
	repo := NewRoleRepository(db)
	ctx := t.Context()

	if err := repo.Create(ctx, &Role{Name: "Admin"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Create(ctx, &Role{Name: "Admin"}); !errors.Is(err, ErrRoleExists) {
		t.Errorf("Create() duplicate error = %v, want ErrRoleExists", err)
	}
}

func TestRoleRepository_ListAndDelete(t *testing.T) {
	db := testDB(t)
	repo := NewRoleRepository(db)
	ctx := t.Context()

	for _, name := range []string{"Viewer", "Admin"} {
		if err := repo.Create(ctx, &Role{Name: name}); err != nil {
			t.Fatalf("Create(%s) error = %v", name, err)
		}
	}

	roles, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(roles) != 2 {
		t.Fatalf("List() returned %d roles, want 2", len(roles))
	}
	// Ordered by name.
	if roles[0].Name != "Admin" || roles[1].Name != "Viewer" {
		t.Errorf("List() order = [%s %s], want [Admin Viewer]", roles[0].Name, roles[1].Name)
	}

	if err := repo.Delete(ctx, roles[0].ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete(ctx, roles[0].ID); !errors.Is(err, ErrRoleNotFound) {
		t.Errorf("Delete() on missing role error = %v, want ErrRoleNotFound", err)
	}
}
