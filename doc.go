// Package main provides the entry point of ldap-sync, a daemon that
// incrementally replicates directory user accounts from Active Directory,
// OpenLDAP or 389 Directory Server into a relational users table. It keeps
// a persistent cursor between runs, maps vendor account state to a
// canonical status and upserts every change by username.
package main
