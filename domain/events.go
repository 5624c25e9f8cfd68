package domain

// AllEvents lists every domain event type for serializer registration.
func AllEvents() []any {
	return []any{
		ConfigurationInitialized{},
		ConfigurationUpdated{},
		RealmCreated{},
		RealmUpdated{},
		RealmDeleted{},
		UserCreated{},
		UserUpdated{},
		UserPasswordChanged{},
		UserAuthenticated{},
		UserIdentifierSet{},
		UserIdentifierRemoved{},
		UserDeleted{},
		SessionCreated{},
		SessionRenewed{},
		SessionSignedOut{},
		ApiKeyCreated{},
		ApiKeyUpdated{},
		ApiKeyAuthenticated{},
		ApiKeyDeleted{},
		RoleCreated{},
		RoleUpdated{},
		RoleDeleted{},
		SenderCreated{},
		SenderUpdated{},
		SenderSetDefault{},
		SenderDeleted{},
		TemplateCreated{},
		TemplateUpdated{},
		TemplateDeleted{},
		DictionaryCreated{},
		DictionaryUpdated{},
		DictionaryDeleted{},
	}
}
