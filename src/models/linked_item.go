package models

import "time"

// LinkedItem is one connection to the banking-data provider (an access token
// scoped to one institution).
type LinkedItem struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	AccessToken     string    `json:"-"`
	ItemID          string    `json:"item_id"`
	InstitutionName string    `json:"institution_name"`
	CreatedAt       time.Time `json:"created_at"`
}

// InsertLinkedItem stores a newly exchanged provider access token.
func InsertLinkedItem(db DBTX, item *LinkedItem) error {
	res, err := db.Exec(`
	INSERT INTO linked_items (user_id, access_token, item_id, institution_name)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(user_id, item_id) DO UPDATE SET
		access_token = excluded.access_token,
		institution_name = excluded.institution_name`,
		item.UserID, item.AccessToken, item.ItemID, item.InstitutionName)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		item.ID = id
	}
	return nil
}

// LinkedItemsByUser lists the user's provider connections.
func LinkedItemsByUser(db DBTX, userID int64) ([]LinkedItem, error) {
	rows, err := db.Query(`
	SELECT id, user_id, access_token, item_id, COALESCE(institution_name, '')
	FROM linked_items WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []LinkedItem
	for rows.Next() {
		var item LinkedItem
		if err := rows.Scan(&item.ID, &item.UserID, &item.AccessToken, &item.ItemID, &item.InstitutionName); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
