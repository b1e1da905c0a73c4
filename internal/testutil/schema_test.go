package testutil

import "testing"

func TestCreateDatabase(t *testing.T) {
	path := CreateDatabase(t)

	for _, table := range Tables() {
		n := Count(t, path, `SELECT COUNT(*) FROM `+table)
		if n != 0 {
			t.Errorf("table %s not empty after creation: %d rows", table, n)
		}
	}
}

func TestSeedAndCount(t *testing.T) {
	path := CreateDatabase(t)

	Seed(t, path,
		`INSERT INTO tags (id) VALUES ('alpha')`,
		`INSERT INTO tags (id) VALUES ('beta')`,
	)

	if n := Count(t, path, `SELECT COUNT(*) FROM tags`); n != 2 {
		t.Errorf("tags count = %d, want 2", n)
	}
	if n := Count(t, path, `SELECT COUNT(*) FROM tags WHERE id = ?`, "alpha"); n != 1 {
		t.Errorf("filtered count = %d, want 1", n)
	}
}
