/*
Package ldap provides the Active Directory query layer for opx.

The fleet tool discovers Exchange topology (servers, database availability
groups, schema versions) by reading the directory; this package supplies the
plumbing:

  - Client: pooled, read-only LDAP operations with typed search requests
  - SRV-based domain controller discovery with standard-port fallback
  - Simple bind and Kerberos/GSSAPI authentication
  - Automatic retry with exponential backoff for transient result codes
  - An error taxonomy that lets callers treat "not found" as an empty
    result rather than a failure

Directory writes are intentionally unsupported: all administrative
mutations go through the Exchange management surface, never raw LDAP.
*/
package ldap
