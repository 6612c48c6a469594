package auth

import (
	"maps"
)

var TemplateUserKey = "current_user"

// TemplateHelpers returns the role helpers and constants for django views.
//
// In templates, you can then use:
//
//	{% if is_authenticated %}
//	{% if can_create %}<a href="/admin/posts/new">New post</a>{% endif %}
//	{% if current_role == roles.admin %}
func TemplateHelpers() map[string]any {
	return map[string]any{
		"is_authenticated": false,
		"can_view":         false,
		"can_create":       false,
		"can_edit":         false,
		"can_delete":       false,
		"roles": map[string]string{
			"user":   string(RoleUser),
			"editor": string(RoleEditor),
			"admin":  string(RoleAdmin),
		},
	}
}

// TemplateHelpersWithActor evaluates the helpers for actor. The checks use
// the role captured in the token, same as the route guards.
func TemplateHelpersWithActor(actor *Actor) map[string]any {
	helpers := TemplateHelpers()
	if actor == nil || actor.Claims == nil {
		return helpers
	}

	helpers[TemplateUserKey] = actor.User
	helpers["current_role"] = string(actor.Role())
	helpers["is_authenticated"] = true
	helpers["can_view"] = RequireRole(actor, ViewDashboard) == nil
	helpers["can_create"] = RequireRole(actor, CreateContent) == nil
	helpers["can_edit"] = RequireRole(actor, EditContent) == nil
	helpers["can_delete"] = RequireRole(actor, DeleteContent) == nil

	return helpers
}

// MergeTemplateData layers data on top of the actor helpers
func MergeTemplateData(actor *Actor, data map[string]any) map[string]any {
	out := TemplateHelpersWithActor(actor)
	maps.Copy(out, data)
	return out
}
