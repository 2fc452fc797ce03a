// Package rbac holds the role model used by every guarded route.
//
// # Roles
//
// The role set is closed. Roles are ranked by authority and compared only:
//
//	SA (5) > DistrictAdministrator (4) > SchoolAdministrator (3)
//	  > SchoolTeacher, ClassTeacher (2) > Student (1)
//
// # Role sets
//
// Every guarded route declares a RoleSet at registration time. NewRoleSet
// panics on an empty or unknown role so a misconfigured route table fails at
// startup instead of serving requests.
//
// # Create policy
//
// CreatePolicy is the caller role to creatable target roles matrix consulted by
// the create-user guard and by update/delete handlers. DefaultCreatePolicy
// returns the built-in matrix:
//
//	SA                     -> every role, including SA
//	DistrictAdministrator  -> SchoolAdministrator, SchoolTeacher, ClassTeacher, Student
//	SchoolAdministrator    -> SchoolTeacher, ClassTeacher, Student
//	SchoolTeacher          -> Student
//	ClassTeacher           -> Student
//	Student                -> none
//
// A replacement matrix can be loaded from YAML with LoadCreatePolicy. Loading
// rejects unknown roles and any entry granting SA creation to a non-SA caller.
// Policies are immutable once built.
package rbac
