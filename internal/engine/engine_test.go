package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"intraops/internal/config"
	"intraops/internal/db"
	"intraops/internal/domain"
	"intraops/internal/engine"
	"intraops/internal/migrate"
	"intraops/internal/notify"
	"intraops/internal/repo"
)

type captureDispatcher struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (d *captureDispatcher) Dispatch(_ context.Context, n notify.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, n)
	return nil
}

func (d *captureDispatcher) byKind(kind string) []notify.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	var res []notify.Notification
	for _, n := range d.sent {
		if n.Kind == kind {
			res = append(res, n)
		}
	}
	return res
}

type testEnv struct {
	Engine     *engine.Engine
	Sender     *notify.Sender
	Dispatcher *captureDispatcher
	Ctx        context.Context
	ClientID   int64
	Ana        int64
	Bruno      int64
	Carla      int64
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	dispatcher := &captureDispatcher{}
	sender := &notify.Sender{Dispatcher: dispatcher}
	eng := engine.New(conn, config.Default(), sender)
	eng.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	r := repo.Repo{DB: conn}
	clientID, err := r.EnsureClient(ctx, domain.Client{Name: "Acme"})
	if err != nil {
		t.Fatalf("seed client: %v", err)
	}
	ana, _ := r.EnsurePerson(ctx, domain.Person{Name: "Ana", RoutingID: "route-ana"})
	bruno, _ := r.EnsurePerson(ctx, domain.Person{Name: "Bruno", RoutingID: "route-bruno"})
	carla, _ := r.EnsurePerson(ctx, domain.Person{Name: "Carla"})
	return testEnv{
		Engine: eng, Sender: sender, Dispatcher: dispatcher, Ctx: ctx,
		ClientID: clientID, Ana: ana, Bruno: bruno, Carla: carla,
	}
}

func (env testEnv) statusID(t *testing.T, code string) int64 {
	t.Helper()
	s, err := env.Engine.Repo.GetStatusByCode(env.Ctx, code)
	if err != nil {
		t.Fatalf("status %s: %v", code, err)
	}
	return s.ID
}

func (env testEnv) create(t *testing.T, in engine.CreateTaskInput) domain.Task {
	t.Helper()
	if in.ClientID == 0 {
		in.ClientID = env.ClientID
	}
	task, err := env.Engine.Create(env.Ctx, env.Ana, in)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func TestCreateDefaults(t *testing.T) {
	env := newTestEnv(t)
	task := env.create(t, engine.CreateTaskInput{Title: "Preparar informe"})
	if task.KanbanColumn != "backlog" {
		t.Fatalf("expected backlog column, got %q", task.KanbanColumn)
	}
	if task.ApprovalStatus != domain.ApprovalNotApplicable {
		t.Fatalf("unexpected approval status %q", task.ApprovalStatus)
	}
	if task.Impact != 1 || task.Urgency != 1 {
		t.Fatalf("expected default levels, got impact=%d urgency=%d", task.Impact, task.Urgency)
	}
	entries, err := env.Engine.HistoryOf(env.Ctx, repo.HistoryFilters{TaskID: task.ID})
	if err != nil || len(entries) != 1 || entries[0].Kind != "creacion" {
		t.Fatalf("expected single creacion entry, got %v (%v)", entries, err)
	}

	_, err = env.Engine.Create(env.Ctx, env.Ana, engine.CreateTaskInput{ClientID: env.ClientID})
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error for missing title, got %v", err)
	}
	_, err = env.Engine.Create(env.Ctx, env.Ana, engine.CreateTaskInput{ClientID: 999, Title: "x"})
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error for unknown client, got %v", err)
	}
}

func TestLeaderExclusivity(t *testing.T) {
	env := newTestEnv(t)
	task := env.create(t, engine.CreateTaskInput{
		Title:        "Migrar servidor",
		Responsibles: []engine.ResponsibleInput{{PersonID: env.Bruno, IsLeader: true}},
	})
	task, err := env.Engine.AddResponsible(env.Ctx, env.Ana, task.ID, env.Carla, true)
	if err != nil {
		t.Fatalf("promote carla: %v", err)
	}
	leaders := 0
	for _, r := range task.Responsibles {
		if r.IsLeader {
			leaders++
			if r.PersonID != env.Carla {
				t.Fatalf("expected carla as leader, got %d", r.PersonID)
			}
		}
	}
	if leaders != 1 {
		t.Fatalf("expected exactly one leader, got %d", leaders)
	}

	// two leaders in the same create payload is rejected up front
	_, err = env.Engine.Create(env.Ctx, env.Ana, engine.CreateTaskInput{
		ClientID: env.ClientID,
		Title:    "doble",
		Responsibles: []engine.ResponsibleInput{
			{PersonID: env.Bruno, IsLeader: true},
			{PersonID: env.Carla, IsLeader: true},
		},
	})
	var ie engine.InvariantError
	if !errors.As(err, &ie) || ie.Invariant != "leader_exclusive" {
		t.Fatalf("expected leader_exclusive invariant, got %v", err)
	}

	// removing the leader leaves the task leaderless, nobody is promoted
	task, err = env.Engine.RemoveResponsible(env.Ctx, env.Ana, task.ID, env.Carla)
	if err != nil {
		t.Fatalf("remove leader: %v", err)
	}
	for _, r := range task.Responsibles {
		if r.IsLeader {
			t.Fatalf("expected no leader after removal")
		}
	}
}

func TestCancelRequiresReason(t *testing.T) {
	env := newTestEnv(t)
	task := env.create(t, engine.CreateTaskInput{
		Title:        "Revisar contrato",
		Responsibles: []engine.ResponsibleInput{{PersonID: env.Bruno}},
	})
	cancelled := env.statusID(t, "cancelada")

	_, err := env.Engine.SetStatus(env.Ctx, env.Ana, task.ID, cancelled, "")
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error without reason, got %v", err)
	}

	task, err = env.Engine.SetStatus(env.Ctx, env.Ana, task.ID, cancelled, "cliente desistio")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if task.CancelReason == nil || *task.CancelReason != "cliente desistio" {
		t.Fatalf("cancel reason not stored: %v", task.CancelReason)
	}
	env.Sender.Wait()
	if got := env.Dispatcher.byKind(notify.KindTaskCancelled); len(got) != 1 {
		t.Fatalf("expected one cancel notification, got %d", len(got))
	}

	// moving back out of cancelled clears the reason
	task, err = env.Engine.SetStatus(env.Ctx, env.Ana, task.ID, env.statusID(t, "pendiente"), "")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if task.CancelReason != nil {
		t.Fatalf("cancel reason should be cleared")
	}
}

func TestApprovalWorkflow(t *testing.T) {
	env := newTestEnv(t)
	task := env.create(t, engine.CreateTaskInput{Title: "Comprar licencias", RequiresApproval: true})
	if task.ApprovalStatus != domain.ApprovalPending {
		t.Fatalf("expected pending approval, got %q", task.ApprovalStatus)
	}

	_, err := env.Engine.SetApproval(env.Ctx, env.Bruno, task.ID, domain.ApprovalRejected, "")
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error for rejection without reason, got %v", err)
	}
	task, err = env.Engine.SetApproval(env.Ctx, env.Bruno, task.ID, domain.ApprovalRejected, "fuera de presupuesto")
	if err != nil || task.RejectionReason == nil {
		t.Fatalf("reject: %v", err)
	}
	task, err = env.Engine.SetApproval(env.Ctx, env.Bruno, task.ID, domain.ApprovalApproved, "")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if task.RejectionReason != nil {
		t.Fatalf("rejection reason should be cleared when leaving rejected")
	}

	task, err = env.Engine.SetStatus(env.Ctx, env.Ana, task.ID, env.statusID(t, "completada"), "")
	if err != nil {
		t.Fatalf("complete after approval: %v", err)
	}
	if task.Completion != 100 {
		t.Fatalf("expected completion 100, got %d", task.Completion)
	}
}

func TestStatusIgnoresPendingApproval(t *testing.T) {
	env := newTestEnv(t)
	task := env.create(t, engine.CreateTaskInput{Title: "Cerrar sprint", RequiresApproval: true})

	// the engine applies any status change regardless of the approval state
	task, err := env.Engine.SetStatus(env.Ctx, env.Ana, task.ID, env.statusID(t, "completada"), "")
	if err != nil {
		t.Fatalf("complete while pending: %v", err)
	}
	if task.Completion != 100 {
		t.Fatalf("expected completion 100, got %d", task.Completion)
	}
	if task.ApprovalStatus != domain.ApprovalPending {
		t.Fatalf("approval state should be untouched, got %q", task.ApprovalStatus)
	}
}

func TestApprovalWithoutFlagPersists(t *testing.T) {
	env := newTestEnv(t)
	task := env.create(t, engine.CreateTaskInput{Title: "Sin flag"})
	if task.RequiresApproval {
		t.Fatalf("task should not require approval")
	}

	task, err := env.Engine.SetApproval(env.Ctx, env.Bruno, task.ID, domain.ApprovalApproved, "")
	if err != nil {
		t.Fatalf("approve without flag: %v", err)
	}
	if task.ApprovalStatus != domain.ApprovalApproved {
		t.Fatalf("expected approved, got %q", task.ApprovalStatus)
	}
	entries, err := env.Engine.HistoryOf(env.Ctx, repo.HistoryFilters{TaskID: task.ID, Kind: "aprobacion"})
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one aprobacion entry, got %v (%v)", entries, err)
	}
}

func TestParentCycleGuard(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, engine.CreateTaskInput{Title: "a"})
	b := env.create(t, engine.CreateTaskInput{Title: "b", ParentID: &a.ID})

	_, err := env.Engine.Patch(env.Ctx, env.Ana, a.ID, engine.TaskPatch{ParentID: &b.ID})
	var ie engine.InvariantError
	if !errors.As(err, &ie) || ie.Invariant != "hierarchy_cycle" {
		t.Fatalf("expected hierarchy_cycle, got %v", err)
	}
	_, err = env.Engine.Patch(env.Ctx, env.Ana, a.ID, engine.TaskPatch{ParentID: &a.ID})
	if !errors.As(err, &ie) {
		t.Fatalf("expected self-parent rejection, got %v", err)
	}
	// empty patch is an error, not a silent no-op
	_, err = env.Engine.Patch(env.Ctx, env.Ana, a.ID, engine.TaskPatch{})
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected empty patch rejection, got %v", err)
	}
}

func TestTrashAndRestore(t *testing.T) {
	env := newTestEnv(t)
	parent := env.create(t, engine.CreateTaskInput{Title: "padre"})
	child := env.create(t, engine.CreateTaskInput{Title: "hija", ParentID: &parent.ID})

	if err := env.Engine.MoveToTrash(env.Ctx, env.Ana, child.ID); err != nil {
		t.Fatalf("trash: %v", err)
	}
	if _, err := env.Engine.Get(env.Ctx, child.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for trashed task, got %v", err)
	}
	trash, err := env.Engine.ListTrash(env.Ctx)
	if err != nil || len(trash) != 1 || trash[0].ID != child.ID {
		t.Fatalf("expected child in trash, got %v (%v)", trash, err)
	}
	// mutations on a trashed task are rejected
	_, err = env.Engine.Patch(env.Ctx, env.Ana, child.ID, engine.TaskPatch{Title: strPtr("x")})
	var ie engine.InvariantError
	if !errors.As(err, &ie) || ie.Invariant != "task_trashed" {
		t.Fatalf("expected task_trashed, got %v", err)
	}

	// restore blocked while the parent itself is in the trash
	if err := env.Engine.MoveToTrash(env.Ctx, env.Ana, parent.ID); err != nil {
		t.Fatalf("trash parent: %v", err)
	}
	_, err = env.Engine.Restore(env.Ctx, env.Ana, child.ID)
	if !errors.As(err, &ie) || ie.Invariant != "restore_reference" {
		t.Fatalf("expected restore_reference, got %v", err)
	}

	if _, err := env.Engine.Restore(env.Ctx, env.Ana, parent.ID); err != nil {
		t.Fatalf("restore parent: %v", err)
	}
	restored, err := env.Engine.Restore(env.Ctx, env.Ana, child.ID)
	if err != nil {
		t.Fatalf("restore child: %v", err)
	}
	if restored.DeletedAt != nil {
		t.Fatalf("restored task still marked deleted")
	}
}

func TestChecklistReorder(t *testing.T) {
	env := newTestEnv(t)
	task := env.create(t, engine.CreateTaskInput{Title: "con checklist"})
	var items []domain.ChecklistItem
	for _, title := range []string{"uno", "dos", "tres"} {
		item, err := env.Engine.AddChecklistItem(env.Ctx, env.Ana, task.ID, title)
		if err != nil {
			t.Fatalf("add item: %v", err)
		}
		items = append(items, item)
	}

	order := []engine.ChecklistOrder{
		{ItemID: items[0].ID, Order: 2},
		{ItemID: items[1].ID, Order: 0},
		{ItemID: items[2].ID, Order: 1},
	}
	got, err := env.Engine.ReorderChecklist(env.Ctx, env.Ana, task.ID, order)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if got[0].ID != items[1].ID || got[1].ID != items[2].ID || got[2].ID != items[0].ID {
		t.Fatalf("unexpected order: %v", got)
	}
	// re-applying the same set changes nothing
	again, err := env.Engine.ReorderChecklist(env.Ctx, env.Ana, task.ID, order)
	if err != nil {
		t.Fatalf("reorder twice: %v", err)
	}
	for i := range got {
		if again[i].ID != got[i].ID {
			t.Fatalf("reorder not idempotent")
		}
	}

	_, err = env.Engine.ReorderChecklist(env.Ctx, env.Ana, task.ID, []engine.ChecklistOrder{{ItemID: 9999, Order: 5}})
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected unknown item rejection, got %v", err)
	}
	_, err = env.Engine.ReorderChecklist(env.Ctx, env.Ana, task.ID, []engine.ChecklistOrder{{ItemID: items[0].ID, Order: 0}})
	var ie engine.InvariantError
	if !errors.As(err, &ie) || ie.Invariant != "checklist_order" {
		t.Fatalf("expected checklist_order, got %v", err)
	}
}

func TestRelations(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, engine.CreateTaskInput{Title: "a"})
	b := env.create(t, engine.CreateTaskInput{Title: "b"})

	rel, err := env.Engine.AddRelation(env.Ctx, env.Ana, a.ID, b.ID, "blocks")
	if err != nil {
		t.Fatalf("relate: %v", err)
	}
	if rel.TypeCode != "blocks" {
		t.Fatalf("unexpected type %q", rel.TypeCode)
	}
	_, err = env.Engine.AddRelation(env.Ctx, env.Ana, a.ID, b.ID, "blocks")
	var ie engine.InvariantError
	if !errors.As(err, &ie) || ie.Invariant != "relation_duplicate" {
		t.Fatalf("expected relation_duplicate, got %v", err)
	}
	// same pair under a different type is fine
	if _, err := env.Engine.AddRelation(env.Ctx, env.Ana, a.ID, b.ID, "relates_to"); err != nil {
		t.Fatalf("second type: %v", err)
	}
	_, err = env.Engine.AddRelation(env.Ctx, env.Ana, a.ID, a.ID, "blocks")
	if !errors.As(err, &ie) || ie.Invariant != "relation_self" {
		t.Fatalf("expected relation_self, got %v", err)
	}

	if err := env.Engine.RemoveRelation(env.Ctx, env.Ana, a.ID, rel.ID); err != nil {
		t.Fatalf("remove relation: %v", err)
	}
}

func TestNotificationFanOut(t *testing.T) {
	env := newTestEnv(t)
	task := env.create(t, engine.CreateTaskInput{
		Title: "Nueva web",
		Responsibles: []engine.ResponsibleInput{
			{PersonID: env.Ana, IsLeader: true},
			{PersonID: env.Bruno},
		},
		Collaborators: []engine.CollaboratorInput{{PersonID: env.Carla, Role: "qa"}},
	})
	env.Sender.Wait()
	created := env.Dispatcher.byKind(notify.KindTaskCreated)
	if len(created) != 1 {
		t.Fatalf("expected one created notification, got %d", len(created))
	}
	// actor ana is excluded, bruno and carla remain
	if len(created[0].Destinations) != 2 {
		t.Fatalf("expected 2 destinations, got %v", created[0].Destinations)
	}

	// adding a responsible notifies the added person only
	if _, err := env.Engine.AddResponsible(env.Ctx, env.Ana, task.ID, env.Carla, false); err != nil {
		t.Fatalf("add responsible: %v", err)
	}
	env.Sender.Wait()
	added := env.Dispatcher.byKind(notify.KindResponsibleAdded)
	if len(added) != 1 || len(added[0].Destinations) != 1 || added[0].Destinations[0].PersonID != env.Carla {
		t.Fatalf("unexpected responsible notifications: %v", added)
	}
}

func TestListPaginatesAfterOrdering(t *testing.T) {
	env := newTestEnv(t)
	for _, title := range []string{"uno", "dos", "tres"} {
		env.create(t, engine.CreateTaskInput{Title: title})
	}
	boosted := env.create(t, engine.CreateTaskInput{Title: "urgente", ManualBoost: true})

	// the first page holds the top of the priority order, not the lowest ids
	page, err := env.Engine.List(env.Ctx, repo.TaskFilters{Limit: 2}, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].ID != boosted.ID {
		t.Fatalf("expected boosted task first on page, got %v", taskTitles(page))
	}

	rest, err := env.Engine.List(env.Ctx, repo.TaskFilters{Limit: 2, Offset: 2}, "")
	if err != nil || len(rest) != 2 {
		t.Fatalf("second page: %v (%v)", taskTitles(rest), err)
	}
	for _, task := range rest {
		if task.ID == boosted.ID {
			t.Fatalf("boosted task repeated on second page")
		}
	}
	past, err := env.Engine.List(env.Ctx, repo.TaskFilters{Offset: 10}, "")
	if err != nil || len(past) != 0 {
		t.Fatalf("offset past the end should be empty, got %v (%v)", taskTitles(past), err)
	}
}

func TestListSortModes(t *testing.T) {
	env := newTestEnv(t)
	far := env.create(t, engine.CreateTaskInput{Title: "lejos", DueDate: strPtr("2026-06-01")})
	soon := env.create(t, engine.CreateTaskInput{Title: "pronto", DueDate: strPtr("2026-03-02")})
	open := env.create(t, engine.CreateTaskInput{Title: "sin fecha"})

	byDue, err := env.Engine.List(env.Ctx, repo.TaskFilters{}, engine.SortDueDate)
	if err != nil {
		t.Fatalf("sort by due: %v", err)
	}
	if byDue[0].ID != soon.ID || byDue[1].ID != far.ID || byDue[2].ID != open.ID {
		t.Fatalf("unexpected due-date order: %v", taskTitles(byDue))
	}

	byCreated, err := env.Engine.List(env.Ctx, repo.TaskFilters{}, engine.SortCreatedAt)
	if err != nil {
		t.Fatalf("sort by created: %v", err)
	}
	// equal timestamps under the fixed clock fall back to id ascending
	if byCreated[0].ID != far.ID || byCreated[2].ID != open.ID {
		t.Fatalf("unexpected created-at order: %v", taskTitles(byCreated))
	}

	_, err = env.Engine.List(env.Ctx, repo.TaskFilters{}, "alphabetical")
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error for unknown sort, got %v", err)
	}
}

func TestChecklistNextOrderAfterGaps(t *testing.T) {
	env := newTestEnv(t)
	task := env.create(t, engine.CreateTaskInput{Title: "huecos"})
	var items []domain.ChecklistItem
	for _, title := range []string{"uno", "dos", "tres"} {
		item, err := env.Engine.AddChecklistItem(env.Ctx, env.Ana, task.ID, title)
		if err != nil {
			t.Fatalf("add item: %v", err)
		}
		items = append(items, item)
	}
	order := []engine.ChecklistOrder{
		{ItemID: items[0].ID, Order: 5},
		{ItemID: items[1].ID, Order: 1},
		{ItemID: items[2].ID, Order: 3},
	}
	if _, err := env.Engine.ReorderChecklist(env.Ctx, env.Ana, task.ID, order); err != nil {
		t.Fatalf("reorder: %v", err)
	}

	// the next slot follows the current maximum even with gaps in between
	added, err := env.Engine.AddChecklistItem(env.Ctx, env.Ana, task.ID, "cuatro")
	if err != nil {
		t.Fatalf("add after gaps: %v", err)
	}
	if added.SortOrder != 6 {
		t.Fatalf("expected sort order 6, got %d", added.SortOrder)
	}

	if err := env.Engine.DeleteChecklistItem(env.Ctx, env.Ana, task.ID, added.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	again, err := env.Engine.AddChecklistItem(env.Ctx, env.Ana, task.ID, "cinco")
	if err != nil {
		t.Fatalf("add after delete: %v", err)
	}
	if again.SortOrder != 6 {
		t.Fatalf("expected sort order 6 after delete, got %d", again.SortOrder)
	}
}

func taskTitles(tasks []domain.Task) []string {
	res := make([]string, len(tasks))
	for i, t := range tasks {
		res[i] = t.Title
	}
	return res
}

func strPtr(s string) *string { return &s }
