package engine

import (
	"context"

	"intraops/internal/domain"
	"intraops/internal/history"
	"intraops/internal/notify"
	"intraops/internal/repo"
)

// AddResponsible assigns a person as responsible, optionally as the leader.
// Promoting to leader clears any previous leader in the same transaction, so
// the at-most-one-leader invariant never has an observable gap. The added
// person is notified; nobody else is.
func (e *Engine) AddResponsible(ctx context.Context, actorID, taskID, personID int64, isLeader bool) (domain.Task, error) {
	t, err := e.liveTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	person, err := e.Repo.GetPerson(ctx, personID)
	if err != nil {
		if err == repo.ErrNotFound {
			return domain.Task{}, validation("feder_id", "unknown person %d", personID)
		}
		return domain.Task{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if isLeader {
		if err := e.Repo.ClearLeaders(ctx, tx, taskID); err != nil {
			return domain.Task{}, err
		}
	}
	err = e.Repo.UpsertResponsible(ctx, tx, domain.Responsible{
		TaskID: taskID, PersonID: personID, IsLeader: isLeader, CreatedAt: e.timestamp(),
	})
	if err != nil {
		return domain.Task{}, err
	}
	err = e.History.Append(ctx, tx, taskID, actorID, history.KindResponsable, history.Payload{
		"feder_id": personID, "es_lider": isLeader,
	})
	if err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}

	if personID != actorID {
		e.notifyTask(notify.KindResponsibleAdded, "Te asignaron una tarea", t.Title, taskID,
			[]notify.Destination{{PersonID: person.ID, RoutingID: person.RoutingID}})
	}
	return e.Get(ctx, taskID)
}

// RemoveResponsible drops the assignment. If the removed person was the
// leader, the task simply has no leader until someone is promoted; there is no
// automatic promotion.
func (e *Engine) RemoveResponsible(ctx context.Context, actorID, taskID, personID int64) (domain.Task, error) {
	if _, err := e.liveTask(ctx, taskID); err != nil {
		return domain.Task{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.RemoveResponsible(ctx, tx, taskID, personID); err != nil {
		return domain.Task{}, err
	}
	err = e.History.Append(ctx, tx, taskID, actorID, history.KindResponsable, history.Payload{
		"feder_id": personID, "removed": true,
	})
	if err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Get(ctx, taskID)
}

func (e *Engine) AddCollaborator(ctx context.Context, actorID, taskID, personID int64, role string) (domain.Task, error) {
	t, err := e.liveTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	person, err := e.Repo.GetPerson(ctx, personID)
	if err != nil {
		if err == repo.ErrNotFound {
			return domain.Task{}, validation("feder_id", "unknown person %d", personID)
		}
		return domain.Task{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	err = e.Repo.UpsertCollaborator(ctx, tx, domain.Collaborator{
		TaskID: taskID, PersonID: personID, Role: role, CreatedAt: e.timestamp(),
	})
	if err != nil {
		return domain.Task{}, err
	}
	payload := history.Payload{"feder_id": personID}
	if role != "" {
		payload["role"] = role
	}
	if err := e.History.Append(ctx, tx, taskID, actorID, history.KindColaborador, payload); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}

	if personID != actorID {
		e.notifyTask(notify.KindCollaboratorAdd, "Te añadieron como colaborador", t.Title, taskID,
			[]notify.Destination{{PersonID: person.ID, RoutingID: person.RoutingID}})
	}
	return e.Get(ctx, taskID)
}

func (e *Engine) RemoveCollaborator(ctx context.Context, actorID, taskID, personID int64) (domain.Task, error) {
	if _, err := e.liveTask(ctx, taskID); err != nil {
		return domain.Task{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.RemoveCollaborator(ctx, tx, taskID, personID); err != nil {
		return domain.Task{}, err
	}
	err = e.History.Append(ctx, tx, taskID, actorID, history.KindColaborador, history.Payload{
		"feder_id": personID, "removed": true,
	})
	if err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Get(ctx, taskID)
}

// AssignTag is idempotent: tagging an already-tagged task commits without a
// duplicate row or a duplicate history entry.
func (e *Engine) AssignTag(ctx context.Context, actorID, taskID, tagID int64) (domain.Task, error) {
	if _, err := e.liveTask(ctx, taskID); err != nil {
		return domain.Task{}, err
	}
	tag, err := e.Repo.GetTag(ctx, tagID)
	if err != nil {
		if err == repo.ErrNotFound {
			return domain.Task{}, validation("tag_id", "unknown tag %d", tagID)
		}
		return domain.Task{}, err
	}
	existing, err := e.Repo.ListTaskTags(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	for _, t := range existing {
		if t.ID == tagID {
			return e.Get(ctx, taskID)
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.AssignTag(ctx, tx, taskID, tagID); err != nil {
		return domain.Task{}, err
	}
	err = e.History.Append(ctx, tx, taskID, actorID, history.KindEtiqueta, history.Payload{
		"tag_id": tagID, "name": tag.Name,
	})
	if err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Get(ctx, taskID)
}

func (e *Engine) UnassignTag(ctx context.Context, actorID, taskID, tagID int64) (domain.Task, error) {
	if _, err := e.liveTask(ctx, taskID); err != nil {
		return domain.Task{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UnassignTag(ctx, tx, taskID, tagID); err != nil {
		return domain.Task{}, err
	}
	err = e.History.Append(ctx, tx, taskID, actorID, history.KindEtiqueta, history.Payload{
		"tag_id": tagID, "removed": true,
	})
	if err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Get(ctx, taskID)
}
