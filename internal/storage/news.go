package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

type proposalRow struct {
	ID          int64         `db:"id"`
	AuthorID    int64         `db:"author_id"`
	Username    string        `db:"username"`
	AuthorName  string        `db:"author_name"`
	Text        string        `db:"text"`
	Attachments string        `db:"attachments"`
	Status      string        `db:"status"`
	ReviewerID  sql.NullInt64 `db:"reviewer_id"`
	Comment     string        `db:"comment"`
	CreatedAt   int64         `db:"created_at"`
	ProcessedAt sql.NullInt64 `db:"processed_at"`
}

func (r proposalRow) proposal() NewsProposal {
	var att []string
	_ = json.Unmarshal([]byte(r.Attachments), &att)
	return NewsProposal{
		ID:          r.ID,
		AuthorID:    r.AuthorID,
		Username:    r.Username,
		AuthorName:  r.AuthorName,
		Text:        r.Text,
		Attachments: att,
		Status:      ProposalStatus(r.Status),
		ReviewerID:  r.ReviewerID.Int64,
		Comment:     r.Comment,
		CreatedAt:   fromMillis(r.CreatedAt),
		ProcessedAt: fromNullMillis(r.ProcessedAt),
	}
}

const proposalCols = `id, author_id, username, author_name, text, attachments, status, reviewer_id, comment, created_at, processed_at`

func (s *sqliteStore) CreateProposal(ctx context.Context, p NewsProposal) (int64, error) {
	if p.Attachments == nil {
		p.Attachments = []string{}
	}
	att, err := json.Marshal(p.Attachments)
	if err != nil {
		return 0, err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	res, err := s.db.NamedExecContext(ctx,
		`INSERT INTO news_proposals(author_id, username, author_name, text, attachments, status, created_at)
		 VALUES(:author_id, :username, :author_name, :text, :attachments, :status, :created_at)`,
		proposalRow{
			AuthorID:    p.AuthorID,
			Username:    p.Username,
			AuthorName:  p.AuthorName,
			Text:        p.Text,
			Attachments: string(att),
			Status:      string(ProposalPending),
			CreatedAt:   toMillis(p.CreatedAt),
		})
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) GetProposal(ctx context.Context, id int64) (NewsProposal, error) {
	var r proposalRow
	if err := s.db.GetContext(ctx, &r, `SELECT `+proposalCols+` FROM news_proposals WHERE id = ?`, id); err != nil {
		return NewsProposal{}, notFound(err)
	}
	return r.proposal(), nil
}

// ListProposals lists proposals in status, oldest first. Empty status lists all.
func (s *sqliteStore) ListProposals(ctx context.Context, status ProposalStatus) ([]NewsProposal, error) {
	var (
		rows []proposalRow
		err  error
	)
	if status == "" {
		err = s.db.SelectContext(ctx, &rows, `SELECT `+proposalCols+` FROM news_proposals ORDER BY id`)
	} else {
		err = s.db.SelectContext(ctx, &rows, `SELECT `+proposalCols+` FROM news_proposals WHERE status = ? ORDER BY id`, string(status))
	}
	if err != nil {
		return nil, err
	}
	out := make([]NewsProposal, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.proposal())
	}
	return out, nil
}

// TransitionProposal moves a proposal from -> to. False means it was not in from.
func (s *sqliteStore) TransitionProposal(ctx context.Context, id int64, from, to ProposalStatus, reviewerID int64, comment string, at time.Time) (bool, error) {
	return affected(s.db.ExecContext(ctx,
		`UPDATE news_proposals SET status = ?, reviewer_id = ?, comment = ?, processed_at = ?
		 WHERE id = ? AND status = ?`,
		string(to), nullID(reviewerID), comment, nullMillis(at), id, string(from)))
}

// UpdateProposalText replaces the text while the proposal is still in status.
func (s *sqliteStore) UpdateProposalText(ctx context.Context, id int64, status ProposalStatus, text string) (bool, error) {
	return affected(s.db.ExecContext(ctx,
		`UPDATE news_proposals SET text = ? WHERE id = ? AND status = ?`, text, id, string(status)))
}
