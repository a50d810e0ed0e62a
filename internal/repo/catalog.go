package repo

import (
	"context"
	"database/sql"

	"intraops/internal/domain"
)

// Catalog tables are read-only reference data seeded by migrations; the repo
// only ever reads them, except for tags which admins may extend.

func (r Repo) GetStatus(ctx context.Context, id int64) (domain.Status, error) {
	var s domain.Status
	err := r.DB.QueryRowContext(ctx, `SELECT id,code,name,kanban_column,is_cancelled,is_terminal,sort_order FROM statuses WHERE id=?`, id).
		Scan(&s.ID, &s.Code, &s.Name, &s.KanbanColumn, &s.IsCancelled, &s.IsTerminal, &s.SortOrder)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) GetStatusByCode(ctx context.Context, code string) (domain.Status, error) {
	var s domain.Status
	err := r.DB.QueryRowContext(ctx, `SELECT id,code,name,kanban_column,is_cancelled,is_terminal,sort_order FROM statuses WHERE code=?`, code).
		Scan(&s.ID, &s.Code, &s.Name, &s.KanbanColumn, &s.IsCancelled, &s.IsTerminal, &s.SortOrder)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) ListStatuses(ctx context.Context) ([]domain.Status, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,code,name,kanban_column,is_cancelled,is_terminal,sort_order FROM statuses ORDER BY sort_order`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Status
	for rows.Next() {
		var s domain.Status
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.KanbanColumn, &s.IsCancelled, &s.IsTerminal, &s.SortOrder); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) GetRelationTypeByCode(ctx context.Context, code string) (domain.RelationType, error) {
	var rt domain.RelationType
	err := r.DB.QueryRowContext(ctx, `SELECT id,code,name FROM relation_types WHERE code=?`, code).
		Scan(&rt.ID, &rt.Code, &rt.Name)
	if err == sql.ErrNoRows {
		return rt, ErrNotFound
	}
	return rt, err
}

func (r Repo) ListRelationTypes(ctx context.Context) ([]domain.RelationType, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,code,name FROM relation_types ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.RelationType
	for rows.Next() {
		var rt domain.RelationType
		if err := rows.Scan(&rt.ID, &rt.Code, &rt.Name); err != nil {
			return nil, err
		}
		res = append(res, rt)
	}
	return res, rows.Err()
}

func (r Repo) GetTag(ctx context.Context, id int64) (domain.Tag, error) {
	var t domain.Tag
	var color sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,color FROM tags WHERE id=?`, id).Scan(&t.ID, &t.Name, &color)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if color.Valid {
		t.Color = color.String
	}
	return t, err
}

func (r Repo) ListTags(ctx context.Context) ([]domain.Tag, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,color FROM tags ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Tag
	for rows.Next() {
		var t domain.Tag
		var color sql.NullString
		if err := rows.Scan(&t.ID, &t.Name, &color); err != nil {
			return nil, err
		}
		if color.Valid {
			t.Color = color.String
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) CreateTag(ctx context.Context, name, color string) (domain.Tag, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO tags(name,color) VALUES (?,?)`, name, nullable(color))
	if err != nil {
		return domain.Tag{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Tag{}, err
	}
	return domain.Tag{ID: id, Name: name, Color: color}, nil
}

func (r Repo) GetPerson(ctx context.Context, id int64) (domain.Person, error) {
	var p domain.Person
	var routing sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,routing_id,active FROM persons WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &routing, &p.Active)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if routing.Valid {
		p.RoutingID = routing.String
	}
	return p, err
}

func (r Repo) ListPersonsByIDs(ctx context.Context, ids []int64) ([]domain.Person, error) {
	res := make([]domain.Person, 0, len(ids))
	for _, id := range ids {
		p, err := r.GetPerson(ctx, id)
		if err != nil {
			if err == ErrNotFound {
				continue
			}
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}

func (r Repo) EnsurePerson(ctx context.Context, p domain.Person) (int64, error) {
	if p.ID != 0 {
		if _, err := r.GetPerson(ctx, p.ID); err == nil {
			return p.ID, nil
		}
		_, err := r.DB.ExecContext(ctx, `INSERT INTO persons(id,name,routing_id,active) VALUES (?,?,?,1)`, p.ID, p.Name, nullable(p.RoutingID))
		return p.ID, err
	}
	res, err := r.DB.ExecContext(ctx, `INSERT INTO persons(name,routing_id,active) VALUES (?,?,1)`, p.Name, nullable(p.RoutingID))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetClient(ctx context.Context, id int64) (domain.Client, error) {
	var c domain.Client
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,active FROM clients WHERE id=?`, id).
		Scan(&c.ID, &c.Name, &c.Active)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) EnsureClient(ctx context.Context, c domain.Client) (int64, error) {
	if c.ID != 0 {
		if _, err := r.GetClient(ctx, c.ID); err == nil {
			return c.ID, nil
		}
		_, err := r.DB.ExecContext(ctx, `INSERT INTO clients(id,name,active) VALUES (?,?,1)`, c.ID, c.Name)
		return c.ID, err
	}
	res, err := r.DB.ExecContext(ctx, `INSERT INTO clients(name,active) VALUES (?,1)`, c.Name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) DeleteClient(ctx context.Context, id int64) error {
	return oneAffected(r.DB.ExecContext(ctx, `DELETE FROM clients WHERE id=?`, id))
}

func (r Repo) MilestoneExists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM milestones WHERE id=?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) EnsureMilestone(ctx context.Context, clientID int64, name string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO milestones(client_id,name) VALUES (?,?)`, clientID, name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
