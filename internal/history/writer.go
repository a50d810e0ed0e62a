package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Coarse-grained event kinds. Kept verbatim from the legacy platform so stored
// trails stay readable by the existing frontend.
const (
	KindCreacion     = "creacion"
	KindEdicion      = "edicion"
	KindEstado       = "estado"
	KindAprobacion   = "aprobacion"
	KindKanban       = "kanban"
	KindResponsable  = "responsable"
	KindColaborador  = "colaborador"
	KindChecklist    = "checklist"
	KindEtiqueta     = "etiqueta"
	KindRelacion     = "relacion"
	KindAdjunto      = "adjunto"
	KindComentario   = "comentario"
	KindPapelera     = "papelera"
	KindRestauracion = "restauracion"
	KindArchivado    = "archivado"
)

// Writer appends immutable history rows inside the caller's transaction, so a
// mutation and its trail commit or roll back together.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type Payload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, taskID, actorID int64, kind string, payload Payload) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal history payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO task_history(task_id,actor_id,kind,payload_json,ts) VALUES (?,?,?,?,?)`,
		taskID, actorID, kind, string(data), ts)
	return err
}
