package local

import "context"

// Preferences are the auxiliary per-device keys the UI persists alongside
// the record collections: the last calendar date the user was looking at and
// their language/theme/member selection.
type Preferences struct {
	LastViewedDate string `json:"last_viewed_date"`
	Language       string `json:"language"`
	Theme          string `json:"theme"`
	SelectedMember string `json:"selected_member"`
}

// LoadPreferences reads the preference keys, applying the defaults the UI
// starts with for keys that were never written.
func (s *Store) LoadPreferences(ctx context.Context) (Preferences, error) {
	prefs := Preferences{Language: "en", Theme: "light"}

	for _, item := range []struct {
		key string
		dst *string
	}{
		{KeyLastViewedDate, &prefs.LastViewedDate},
		{KeyLanguage, &prefs.Language},
		{KeyTheme, &prefs.Theme},
		{KeySelectedMember, &prefs.SelectedMember},
	} {
		value, ok, err := s.ReadKey(ctx, item.key)
		if err != nil {
			return prefs, err
		}
		if ok {
			*item.dst = value
		}
	}
	return prefs, nil
}

// SavePreferences writes all preference keys.
func (s *Store) SavePreferences(ctx context.Context, prefs Preferences) error {
	for _, item := range []struct {
		key   string
		value string
	}{
		{KeyLastViewedDate, prefs.LastViewedDate},
		{KeyLanguage, prefs.Language},
		{KeyTheme, prefs.Theme},
		{KeySelectedMember, prefs.SelectedMember},
	} {
		if err := s.WriteKey(ctx, item.key, item.value); err != nil {
			return err
		}
	}
	return nil
}
